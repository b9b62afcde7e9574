package domain

import "time"

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"active,archived"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Task statuses. A task leaves active work once every action is completed.
const (
	TaskActive          = "active"
	TaskPendingApproval = "pending_approval"
	TaskApproved        = "approved"
	TaskArchived        = "archived"
)

type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	TemplateID  *string  `json:"template_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"active,pending_approval,approved,archived"`
	Actions     []Action `json:"actions"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
	Version     int      `json:"version"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ActionType is opaque to the dependency graph.
type ActionType string

const (
	ActionText            ActionType = "text"
	ActionLongText        ActionType = "long_text"
	ActionFileUpload      ActionType = "file_upload"
	ActionApproval        ActionType = "approval"
	ActionDate            ActionType = "date"
	ActionDocument        ActionType = "document"
	ActionInfo            ActionType = "info"
	ActionVideoUpload     ActionType = "video_upload"
	ActionVideoDecoupage  ActionType = "video_decoupage"
	ActionVideoEditing    ActionType = "video_editing"
	ActionAudioProcessing ActionType = "audio_processing"
)

// ActionTypes lists every known action type in declaration order.
var ActionTypes = []ActionType{
	ActionText,
	ActionLongText,
	ActionFileUpload,
	ActionApproval,
	ActionDate,
	ActionDocument,
	ActionInfo,
	ActionVideoUpload,
	ActionVideoDecoupage,
	ActionVideoEditing,
	ActionAudioProcessing,
}

// Valid reports whether t is one of ActionTypes.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Action is one node of a task's dependency graph.
type Action struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           ActionType     `json:"type" enum:"text,long_text,file_upload,approval,date,document,info,video_upload,video_decoupage,video_editing,audio_processing"`
	Description    string         `json:"description,omitempty"`
	Completed      bool           `json:"completed"`
	CompletedAt    *string        `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy    *string        `json:"completed_by,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	IsBlocking     bool           `json:"is_blocking,omitempty"`
	Attachments    []string       `json:"attachments,omitempty"`
	ApprovalStatus string         `json:"approval_status,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Clone returns a copy that shares no slices with a. Payload is copied shallowly.
func (a Action) Clone() Action {
	out := a
	if a.DependsOn != nil {
		out.DependsOn = append([]string(nil), a.DependsOn...)
	}
	if a.Attachments != nil {
		out.Attachments = append([]string(nil), a.Attachments...)
	}
	if a.CompletedAt != nil {
		v := *a.CompletedAt
		out.CompletedAt = &v
	}
	if a.CompletedBy != nil {
		v := *a.CompletedBy
		out.CompletedBy = &v
	}
	if a.Payload != nil {
		out.Payload = make(map[string]any, len(a.Payload))
		for k, v := range a.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// CloneActions deep-copies a collection.
func CloneActions(in []Action) []Action {
	if in == nil {
		return nil
	}
	out := make([]Action, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// CompletionMeta is supplied by the caller when completing an action.
type CompletionMeta struct {
	ActorID        string
	At             time.Time
	Attachments    []string
	ApprovalStatus string
}
