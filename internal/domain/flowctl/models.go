// Package flowctl holds the read models returned by the flowctl API.
// The shapes mirror the API's JSON; the console passes them through to the page.
package flowctl

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

// Approval states.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ListParams are the pagination and filter parameters shared by list endpoints.
// Zero values are not sent.
type ListParams struct {
	Page         int
	CountPerPage int
	Filter       string
	Status       string
}

// Pagination is the paging metadata of a list response.
type Pagination struct {
	PageCount  int `json:"page_count"`
	TotalCount int `json:"total_count"`
}

// Namespace partitions flows, executions, approvals and members.
type Namespace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NamespaceList is the response of the namespace listing.
type NamespaceList struct {
	Namespaces []Namespace `json:"namespaces"`
	Pagination
}

// Flow is a workflow definition.
type Flow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StepCount   int    `json:"step_count,omitempty"`
}

// FlowList is the response of the flow listing.
type FlowList struct {
	Flows []Flow `json:"flows"`
	Pagination
}

// FlowInput describes one input field of a flow trigger form.
type FlowInput struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Validation  string   `json:"validation"`
	Required    bool     `json:"required"`
	Default     string   `json:"default"`
	Options     []string `json:"options,omitempty"`
}

// FlowInputs is the response of the flow inputs endpoint.
type FlowInputs struct {
	Inputs []FlowInput `json:"inputs"`
}

// FlowMeta is the metadata of a flow and its actions.
type FlowMeta struct {
	Meta    FlowMetadata `json:"meta"`
	Actions []FlowAction `json:"actions"`
}

// FlowMetadata identifies a flow.
type FlowMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Namespace   string `json:"namespace"`
}

// FlowAction is a single step of a flow.
type FlowAction struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Executor string `json:"executor"`
	Approval bool   `json:"approval"`
}

// Execution is a recorded run of a flow.
type Execution struct {
	ID              string         `json:"id"`
	FlowID          string         `json:"flow_id"`
	FlowName        string         `json:"flow_name"`
	Status          string         `json:"status"`
	Input           map[string]any `json:"input,omitempty"`
	TriggeredBy     string         `json:"triggered_by"`
	CurrentActionID string         `json:"current_action_id,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       string         `json:"created_at"`
	CompletedAt     string         `json:"completed_at,omitempty"`
}

// ExecutionList is the response of the execution history listing.
type ExecutionList struct {
	Executions []Execution `json:"executions"`
	Pagination
}

// Approval is a pending authorization gate on an execution.
type Approval struct {
	ID          string `json:"id"`
	ActionID    string `json:"action_id"`
	FlowName    string `json:"flow_name"`
	Status      string `json:"status"`
	ExecID      string `json:"exec_id"`
	RequestedBy string `json:"requested_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ApprovalList is the response of the approval listing.
type ApprovalList struct {
	Approvals []Approval `json:"approvals"`
	Pagination
}

// Member is a user or group bound to a namespace role.
type Member struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SubjectType string `json:"subject_type"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// MemberList is the response of the namespace members listing.
type MemberList struct {
	Members []Member `json:"members"`
}
