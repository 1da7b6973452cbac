package database

import "time"

// Host is a managed remote machine reachable through the proxy.
type Host struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null" json:"name"`
	Network      string    `gorm:"not null" json:"network"`
	Port         int       `gorm:"not null;default:22" json:"port"`
	CredentialID uint      `gorm:"not null;index" json:"credential_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Credential holds login material for a host. Secret and Passphrase are
// Fernet-encrypted at rest; the secrets package decrypts them on use.
type Credential struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Label      string    `gorm:"uniqueIndex;not null" json:"label"`
	Account    string    `gorm:"not null" json:"account"`
	Kind       string    `gorm:"not null;default:password" json:"kind"` // "password" | "key"
	Secret     string    `gorm:"type:text" json:"-"`
	Passphrase string    `json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommandLog is one reconstructed, human-issued command.
type CommandLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username   string    `gorm:"index;size:150" json:"username"`
	HostName   string    `gorm:"index;size:150" json:"host_name"`
	HostAddr   string    `json:"host_addr"`
	Credential string    `json:"credential"`
	Command    string    `gorm:"type:text" json:"command"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// CommandAlert is an alert rule evaluated against every reconstructed
// command. CommandRule is a JSON array of pattern strings; Hosts and
// AlertContacts are comma-separated id lists, mirroring how the alert
// management frontend stores them.
type CommandAlert struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	CommandRule   string    `gorm:"type:text" json:"command_rule"`
	MatchType     string    `gorm:"not null;default:exact" json:"match_type"` // "exact" | "fuzzy"
	Hosts         string    `gorm:"type:text" json:"hosts"`
	AlertContacts string    `gorm:"type:text" json:"alert_contacts"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AlertContact is a notification recipient (webhook endpoint).
type AlertContact struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	NotifyType string    `gorm:"not null" json:"notify_type"` // "dingtalk" | "wecom" | "feishu" | "generic"
	Webhook    string    `gorm:"not null" json:"webhook"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AlertHistoryLog records one fired alert occurrence.
type AlertHistoryLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username      string    `gorm:"index;size:150" json:"username"`
	HostName      string    `gorm:"index;size:150" json:"host_name"`
	Command       string    `gorm:"type:text" json:"command"`
	AlertRule     string    `json:"alert_rule"`
	AlertContacts string    `gorm:"type:text" json:"alert_contacts"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// AccessToken is a bearer token issued by the platform's auth frontend.
// This core only validates tokens; issuance and revocation live elsewhere.
type AccessToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null;size:128" json:"-"`
	Username  string    `gorm:"not null;size:150" json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
