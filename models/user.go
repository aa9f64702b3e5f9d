package models

type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// CredentialSubject is the identity a credential is issued to: the wallet
// address when the user has one, otherwise the opaque user id.
func (u *User) CredentialSubject() string {
	if u.WalletAddress != "" {
		return u.WalletAddress
	}
	return u.ID
}
