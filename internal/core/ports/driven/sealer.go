package driven

// Sealer encrypts export output under a password and decrypts it later.
// Seal must be self-contained: Open needs only the blob and the password.
type Sealer interface {
	// Seal encrypts data
	Seal(data []byte, password string) ([]byte, error)

	// Open decrypts a sealed blob. Fails with
	// domain.ErrAuthenticationFailed on a wrong password or tampering.
	Open(blob []byte, password string) ([]byte, error)
}
