package schema

import "fmt"

// Table binds a table name to the model it is created from.
type Table struct {
	Name  string
	Model any
}

// ForeignKey is a constraint added once both ends exist.
type ForeignKey struct {
	// Name defaults to PostgreSQL's <table>_<column>_fkey.
	Name      string
	Table     string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

func (fk ForeignKey) ConstraintName() string {
	if fk.Name != "" {
		return fk.Name
	}
	return fmt.Sprintf("%s_%s_fkey", fk.Table, fk.Column)
}

// Tables returns the declared tables, parents before children.
func Tables() []Table {
	return []Table{
		{Name: "organizations", Model: &Organization{}},
		{Name: "users", Model: &User{}},
		{Name: "pending_registrations", Model: &PendingRegistration{}},
		{Name: "guest_email_verifications", Model: &GuestEmailVerification{}},
		{Name: "refresh_tokens", Model: &RefreshToken{}},
		{Name: "workspaces", Model: &Workspace{}},
		{Name: "workspace_modules", Model: &WorkspaceModule{}},
		{Name: "sessions", Model: &Session{}},
		{Name: "session_modules", Model: &SessionModule{}},
		{Name: "session_module_timer_state", Model: &SessionModuleTimerState{}},
		{Name: "session_participants", Model: &SessionParticipant{}},
		{Name: "session_pending_email_codes", Model: &SessionPendingEmailCode{}},
		{Name: "session_join_fingerprints", Model: &SessionJoinFingerprint{}},
		{Name: "session_question_messages", Model: &SessionQuestionMessage{}},
		{Name: "session_question_message_likes", Model: &SessionQuestionMessageLike{}},
	}
}

const (
	cascade = "CASCADE"
	setNull = "SET NULL"
)

// ForeignKeys returns every foreign key of the declared tables.
// sessions.active_module_id and session_modules.session_id form a cycle,
// which is why constraints are added after the tables.
func ForeignKeys() []ForeignKey {
	return []ForeignKey{
		{Table: "refresh_tokens", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: cascade},
		{Table: "workspaces", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: cascade},
		{Table: "workspace_modules", Column: "workspace_id", RefTable: "workspaces", RefColumn: "id", OnDelete: cascade},
		{Table: "sessions", Column: "workspace_id", RefTable: "workspaces", RefColumn: "id", OnDelete: cascade},
		{Name: "fk_sessions_active_module_id", Table: "sessions", Column: "active_module_id", RefTable: "session_modules", RefColumn: "id", OnDelete: setNull},
		{Table: "session_modules", Column: "session_id", RefTable: "sessions", RefColumn: "id", OnDelete: cascade},
		{Table: "session_module_timer_state", Column: "session_module_id", RefTable: "session_modules", RefColumn: "id", OnDelete: cascade},
		{Table: "session_participants", Column: "session_id", RefTable: "sessions", RefColumn: "id", OnDelete: cascade},
		{Table: "session_participants", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: cascade},
		{Table: "session_participants", Column: "organization_id", RefTable: "organizations", RefColumn: "id", OnDelete: setNull},
		{Table: "session_pending_email_codes", Column: "session_id", RefTable: "sessions", RefColumn: "id", OnDelete: cascade},
		{Table: "session_join_fingerprints", Column: "session_id", RefTable: "sessions", RefColumn: "id", OnDelete: cascade},
		{Name: "fk_session_join_fingerprints_participant_id", Table: "session_join_fingerprints", Column: "participant_id", RefTable: "session_participants", RefColumn: "id", OnDelete: setNull},
		{Table: "session_question_messages", Column: "session_module_id", RefTable: "session_modules", RefColumn: "id", OnDelete: cascade},
		{Table: "session_question_messages", Column: "participant_id", RefTable: "session_participants", RefColumn: "id", OnDelete: cascade},
		{Table: "session_question_messages", Column: "parent_id", RefTable: "session_question_messages", RefColumn: "id", OnDelete: cascade},
		{Table: "session_question_message_likes", Column: "message_id", RefTable: "session_question_messages", RefColumn: "id", OnDelete: cascade},
		{Table: "session_question_message_likes", Column: "participant_id", RefTable: "session_participants", RefColumn: "id", OnDelete: cascade},
	}
}
