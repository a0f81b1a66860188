package app

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"encryptedpoker/internal/codec"
	"encryptedpoker/internal/state"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) == 0 {
		return fmt.Errorf("missing tx.sig")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// consumeNonce enforces strictly-increasing numeric nonces per signer.
// Call only after signature verification succeeded.
func consumeNonce(st *state.State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce: %w", err)
	}
	if n <= st.NonceMax[env.Signer] {
		return fmt.Errorf("replayed tx.nonce: got %d have %d", n, st.NonceMax[env.Signer])
	}
	st.NonceMax[env.Signer] = n
	return nil
}

// requireRegisterAccountAuth authenticates a self-signed key registration:
// the registration must be signed by the key it registers.
func requireRegisterAccountAuth(env codec.TxEnvelope, msg codec.AuthRegisterAccountTx) error {
	if msg.Account == "" {
		return fmt.Errorf("missing account")
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != msg.Account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, msg.Account)
	}
	pub := ed25519.PublicKey(msg.PubKey)
	msgBytes := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(pub, msgBytes, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func requireAccountAuth(st *state.State, env codec.TxEnvelope, account string) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	if account == "" {
		return fmt.Errorf("missing account")
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != account {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, account)
	}
	pub := st.AccountKeys[account]
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("account %q missing pubKey (auth/register_account required)", account)
	}
	msg := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// requireCollaboratorAuth authenticates an mpc/* callback against the
// registered confidential-computation service identity.
func requireCollaboratorAuth(st *state.State, env codec.TxEnvelope) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	c := st.Collaborator
	if c == nil {
		return fmt.Errorf("%w: no collaborator registered", ErrUnauthorizedCallback)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorizedCallback, err.Error())
	}
	if env.Signer != c.Name {
		return fmt.Errorf("%w: signer=%q want=%q", ErrUnauthorizedCallback, env.Signer, c.Name)
	}
	if len(c.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: collaborator missing pubKey", ErrUnauthorizedCallback)
	}
	msg := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(c.PubKey), msg, env.Sig) {
		return fmt.Errorf("%w: invalid signature", ErrUnauthorizedCallback)
	}
	return nil
}
