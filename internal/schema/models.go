package schema

import (
	"encoding/json"
	"time"
)

// Models mirror the schema at the head of the migration chain. Foreign keys
// are declared separately in declare.go.

type Organization struct {
	ID        int32      `gorm:"column:id;primaryKey;index:ix_organizations_id"`
	Name      string     `gorm:"column:name;type:varchar;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`
	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false;index:ix_organizations_is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

func (Organization) TableName() string { return "organizations" }

type User struct {
	ID                        int32           `gorm:"column:id;primaryKey;index:ix_users_id"`
	Email                     string          `gorm:"column:email;type:varchar;not null;index:ix_users_email;uniqueIndex:ix_users_email_unique,where:is_deleted = false"`
	PasswordHash              string          `gorm:"column:password_hash;type:varchar;not null"`
	EmailVerified             bool            `gorm:"column:email_verified;not null;default:false"`
	VerificationCode          *string         `gorm:"column:verification_code;type:varchar"`
	VerificationCodeExpiresAt *time.Time      `gorm:"column:verification_code_expires_at"`
	FirstName                 *string         `gorm:"column:first_name;type:varchar"`
	LastName                  *string         `gorm:"column:last_name;type:varchar"`
	AvatarURL                 *string         `gorm:"column:avatar_url;type:varchar"`
	Preferences               json.RawMessage `gorm:"column:preferences;type:jsonb"`
	CreatedAt                 time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt                 time.Time       `gorm:"column:updated_at;not null"`
	IsDeleted                 bool            `gorm:"column:is_deleted;not null;default:false;index:ix_users_is_deleted"`
	DeletedAt                 *time.Time      `gorm:"column:deleted_at"`
}

func (User) TableName() string { return "users" }

type PendingRegistration struct {
	ID                        int32     `gorm:"column:id;primaryKey;index:ix_pending_registrations_id"`
	Email                     string    `gorm:"column:email;type:varchar;not null;uniqueIndex:ix_pending_registrations_email"`
	PasswordHash              string    `gorm:"column:password_hash;type:varchar;not null"`
	FirstName                 *string   `gorm:"column:first_name;type:varchar"`
	LastName                  *string   `gorm:"column:last_name;type:varchar"`
	VerificationCode          string    `gorm:"column:verification_code;type:varchar;not null"`
	VerificationCodeExpiresAt time.Time `gorm:"column:verification_code_expires_at;not null;index:ix_pending_registrations_expires_at"`
	CreatedAt                 time.Time `gorm:"column:created_at;not null"`
}

func (PendingRegistration) TableName() string { return "pending_registrations" }

type GuestEmailVerification struct {
	ID          int32     `gorm:"column:id;primaryKey"`
	Email       string    `gorm:"column:email;type:varchar;not null;uniqueIndex:ix_guest_email_verifications_email"`
	DisplayName *string   `gorm:"column:display_name;type:varchar"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (GuestEmailVerification) TableName() string { return "guest_email_verifications" }

// RefreshToken has a model but no migration ever created its table, so on
// existing deployments it only appears through CreateMissing.
type RefreshToken struct {
	ID        int32     `gorm:"column:id;primaryKey;index:ix_refresh_tokens_id"`
	UserID    int32     `gorm:"column:user_id;not null;index:ix_refresh_tokens_user_id"`
	Token     string    `gorm:"column:token;type:varchar;not null;uniqueIndex:ix_refresh_tokens_token"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index:ix_refresh_tokens_expires_at"`
	Revoked   bool      `gorm:"column:revoked;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

type Workspace struct {
	ID               int32           `gorm:"column:id;primaryKey;index:ix_workspaces_id"`
	UserID           int32           `gorm:"column:user_id;not null;index:ix_workspaces_user_id"`
	Name             string          `gorm:"column:name;type:varchar;not null"`
	Description      *string         `gorm:"column:description;type:varchar"`
	Status           string          `gorm:"column:status;type:varchar;not null;default:active;index:ix_workspaces_status"`
	TemplateSettings json.RawMessage `gorm:"column:template_settings;type:json"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;not null"`
	IsDeleted        bool            `gorm:"column:is_deleted;not null;default:false;index:ix_workspaces_is_deleted"`
	DeletedAt        *time.Time      `gorm:"column:deleted_at"`
}

func (Workspace) TableName() string { return "workspaces" }

type WorkspaceModule struct {
	ID          int32           `gorm:"column:id;primaryKey"`
	WorkspaceID int32           `gorm:"column:workspace_id;not null;index:ix_workspace_modules_workspace_id"`
	Name        string          `gorm:"column:name;type:varchar;not null"`
	ModuleType  string          `gorm:"column:module_type;type:varchar;not null"`
	Settings    json.RawMessage `gorm:"column:settings;type:json"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;not null"`
	IsDeleted   bool            `gorm:"column:is_deleted;not null;default:false;index:ix_workspace_modules_is_deleted"`
	DeletedAt   *time.Time      `gorm:"column:deleted_at"`
}

func (WorkspaceModule) TableName() string { return "workspace_modules" }

type Session struct {
	ID                      int32           `gorm:"column:id;primaryKey;index:ix_sessions_id"`
	WorkspaceID             int32           `gorm:"column:workspace_id;not null;index:ix_sessions_workspace_id"`
	Name                    string          `gorm:"column:name;type:varchar;not null"`
	Description             *string         `gorm:"column:description;type:varchar"`
	StoppedParticipantCount int32           `gorm:"column:stopped_participant_count;not null;default:0"`
	StartDatetime           *time.Time      `gorm:"column:start_datetime"`
	EndDatetime             *time.Time      `gorm:"column:end_datetime"`
	Status                  string          `gorm:"column:status;type:varchar;not null;default:active;index:ix_sessions_status"`
	IsStopped               bool            `gorm:"column:is_stopped;not null;default:false;index:ix_sessions_is_stopped"`
	Passcode                string          `gorm:"column:passcode;type:varchar(6);not null;uniqueIndex:ix_sessions_passcode"`
	ActiveModuleID          *int32          `gorm:"column:active_module_id"`
	Settings                json.RawMessage `gorm:"column:settings;type:json"`
	CreatedAt               time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt               time.Time       `gorm:"column:updated_at;not null"`
	IsDeleted               bool            `gorm:"column:is_deleted;not null;default:false;index:ix_sessions_is_deleted"`
	DeletedAt               *time.Time      `gorm:"column:deleted_at"`
}

func (Session) TableName() string { return "sessions" }

type SessionModule struct {
	ID         int32           `gorm:"column:id;primaryKey"`
	SessionID  int32           `gorm:"column:session_id;not null;index:ix_session_modules_session_id;uniqueIndex:uq_session_modules_one_active,where:is_active = true"`
	Name       string          `gorm:"column:name;type:varchar;not null"`
	ModuleType string          `gorm:"column:module_type;type:varchar;not null"`
	Settings   json.RawMessage `gorm:"column:settings;type:json"`
	IsActive   bool            `gorm:"column:is_active;not null;default:false;index:ix_session_modules_is_active"`
	CreatedAt  time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;not null"`
	IsDeleted  bool            `gorm:"column:is_deleted;not null;default:false;index:ix_session_modules_is_deleted"`
	DeletedAt  *time.Time      `gorm:"column:deleted_at"`
}

func (SessionModule) TableName() string { return "session_modules" }

type SessionModuleTimerState struct {
	SessionModuleID  int32      `gorm:"column:session_module_id;primaryKey;autoIncrement:false"`
	IsPaused         bool       `gorm:"column:is_paused;not null;default:true"`
	EndAt            *time.Time `gorm:"column:end_at"`
	RemainingSeconds *int32     `gorm:"column:remaining_seconds"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null"`
}

func (SessionModuleTimerState) TableName() string { return "session_module_timer_state" }

type SessionParticipant struct {
	ID              int32      `gorm:"column:id;primaryKey"`
	SessionID       int32      `gorm:"column:session_id;not null;index:ix_session_participants_session_id;index:ix_session_participants_session_user,priority:1;index:ix_session_participants_session_guest_email,priority:1"`
	ParticipantType string     `gorm:"column:participant_type;type:varchar;not null;index:ix_session_participants_participant_type"`
	UserID          *int32     `gorm:"column:user_id;index:ix_session_participants_user_id;index:ix_session_participants_session_user,priority:2"`
	GuestEmail      *string    `gorm:"column:guest_email;type:varchar;index:ix_session_participants_guest_email;index:ix_session_participants_session_guest_email,priority:2"`
	OrganizationID  *int32     `gorm:"column:organization_id"`
	DisplayName     *string    `gorm:"column:display_name;type:varchar"`
	AnonymousSlug   *string    `gorm:"column:anonymous_slug;type:varchar;index:ix_session_participants_anonymous_slug"`
	LastHeartbeatAt *time.Time `gorm:"column:last_heartbeat_at;index:ix_session_participants_last_heartbeat_at"`
	IsBanned        bool       `gorm:"column:is_banned;not null;default:false"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
	IsDeleted       bool       `gorm:"column:is_deleted;not null;default:false;index:ix_session_participants_is_deleted"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
}

func (SessionParticipant) TableName() string { return "session_participants" }

type SessionPendingEmailCode struct {
	ID        int32     `gorm:"column:id;primaryKey"`
	SessionID int32     `gorm:"column:session_id;not null;index:ix_session_pending_email_codes_session_id;uniqueIndex:uq_session_pending_email_code_session_email,priority:1"`
	Email     string    `gorm:"column:email;type:varchar;not null;index:ix_session_pending_email_codes_email;uniqueIndex:uq_session_pending_email_code_session_email,priority:2"`
	Code      string    `gorm:"column:code;type:varchar;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index:ix_session_pending_email_codes_expires_at"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (SessionPendingEmailCode) TableName() string { return "session_pending_email_codes" }

type SessionJoinFingerprint struct {
	ID              int32     `gorm:"column:id;primaryKey;index:ix_session_join_fingerprints_id"`
	SessionID       int32     `gorm:"column:session_id;not null;index:ix_session_join_fingerprints_session_hash_entry,priority:1"`
	ParticipantID   *int32    `gorm:"column:participant_id;index:ix_session_join_fingerprints_participant_id"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;type:varchar(64);not null;index:ix_session_join_fingerprints_session_hash_entry,priority:2"`
	EntryType       string    `gorm:"column:entry_type;type:varchar(32);not null;index:ix_session_join_fingerprints_session_hash_entry,priority:3"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index:ix_session_join_fingerprints_created_at"`
}

func (SessionJoinFingerprint) TableName() string { return "session_join_fingerprints" }

type SessionQuestionMessage struct {
	ID              int32      `gorm:"column:id;primaryKey"`
	SessionModuleID int32      `gorm:"column:session_module_id;not null;index:ix_session_question_messages_session_module_id"`
	ParticipantID   int32      `gorm:"column:participant_id;not null;index:ix_session_question_messages_participant_id"`
	ParentID        *int32     `gorm:"column:parent_id;index:ix_session_question_messages_parent_id"`
	Content         string     `gorm:"column:content;type:text;not null"`
	IsAnonymous     bool       `gorm:"column:is_anonymous;not null;default:false"`
	LikesCount      int32      `gorm:"column:likes_count;not null;default:0"`
	IsAnswered      bool       `gorm:"column:is_answered;not null;default:false"`
	PinnedAt        *time.Time `gorm:"column:pinned_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null"`
	IsDeleted       bool       `gorm:"column:is_deleted;not null;default:false;index:ix_session_question_messages_is_deleted"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
}

func (SessionQuestionMessage) TableName() string { return "session_question_messages" }

type SessionQuestionMessageLike struct {
	ID            int32 `gorm:"column:id;primaryKey"`
	MessageID     int32 `gorm:"column:message_id;not null;index:ix_session_question_message_likes_message_id;uniqueIndex:uq_session_question_message_likes_message_participant,priority:1"`
	ParticipantID int32 `gorm:"column:participant_id;not null;index:ix_session_question_message_likes_participant_id;uniqueIndex:uq_session_question_message_likes_message_participant,priority:2"`
}

func (SessionQuestionMessageLike) TableName() string { return "session_question_message_likes" }
