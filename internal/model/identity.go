package model

// UIDCookieName is the cookie carrying the anonymous identity.
const UIDCookieName = "uid"

// AnonymousIdentity is the body of GET /api/uid.
type AnonymousIdentity struct {
	UID string `json:"uid"`
}
