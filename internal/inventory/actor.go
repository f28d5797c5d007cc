package inventory

// Actor is the authenticated identity a call runs on behalf of. A nil
// *Actor means the caller is not authenticated. Admin status is not part
// of it; the gate looks that up on every privileged call.
type Actor struct {
	UserID int64
	Email  string
}

func requireActor(a *Actor) error {
	if a == nil || a.UserID == 0 {
		return ErrUnauthorized
	}
	return nil
}
