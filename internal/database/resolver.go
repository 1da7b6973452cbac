package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Resolution failures are terminal for a session and map to a 4004 close.
var (
	ErrHostNotFound       = errors.New("host not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// ResolvedHost is everything needed to open a remote shell: the host's
// network endpoint plus its credential with still-encrypted secret material.
type ResolvedHost struct {
	HostID     uint
	HostName   string
	Address    string
	Port       int
	Credential Credential
}

// Resolver looks up hosts and their credentials.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the connection target for a host id. The credential's
// Secret/Passphrase fields are returned as stored (encrypted); decryption is
// the caller's concern.
func (r *Resolver) Resolve(ctx context.Context, hostID uint) (*ResolvedHost, error) {
	var host Host
	if err := r.db.WithContext(ctx).First(&host, hostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("host %d: %w", hostID, ErrHostNotFound)
		}
		return nil, fmt.Errorf("load host %d: %w", hostID, err)
	}

	var cred Credential
	if err := r.db.WithContext(ctx).First(&cred, host.CredentialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("credential %d for host %q: %w", host.CredentialID, host.Name, ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("load credential %d: %w", host.CredentialID, err)
	}

	return &ResolvedHost{
		HostID:     host.ID,
		HostName:   host.Name,
		Address:    host.Network,
		Port:       host.Port,
		Credential: cred,
	}, nil
}
