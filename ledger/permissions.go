package ledger

import "fmt"

// AuthRequired is the authorization an account demands for an action.
type AuthRequired uint8

const (
	AuthNone AuthRequired = iota
	AuthProof
	AuthSignature
	AuthProofOrSignature
)

func (a AuthRequired) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthProof:
		return "proof"
	case AuthSignature:
		return "signature"
	case AuthProofOrSignature:
		return "proofOrSignature"
	}
	return fmt.Sprintf("auth(%d)", uint8(a))
}

// Permissions of the zkApp account.
type Permissions struct {
	// EditState gates every transaction that writes a slot.
	EditState AuthRequired
}

// DefaultPermissions lets either a valid proof or the account signature edit state.
func DefaultPermissions() Permissions {
	return Permissions{EditState: AuthProofOrSignature}
}
