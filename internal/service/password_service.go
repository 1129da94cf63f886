package service

type PasswordService interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded and whether the hash
	// should be replaced with one produced under the current policy.
	Verify(password, encoded string) (ok bool, rehashNeeded bool)
}
