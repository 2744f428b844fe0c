package transport

// Wire types for the widget REST contract. Responses arrive wrapped in a
// top-level data envelope.

type BootstrapRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	BusinessID string `json:"businessId"`
	CustomerID string `json:"customerId,omitempty"`
	AgentName  string `json:"agentName,omitempty"`
}

type WorkflowStepPayload struct {
	Prompt  string          `json:"prompt"`
	Options []OptionPayload `json:"options,omitempty"`
}

type OptionPayload struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type BootstrapResult struct {
	CustomerID      string               `json:"customerId"`
	ConversationID  string               `json:"conversationId"`
	SessionToken    string               `json:"sessionToken,omitempty"`
	WorkflowActive  bool                 `json:"workflowActive"`
	WorkflowTrigger string               `json:"workflowTrigger,omitempty"`
	FirstStep       *WorkflowStepPayload `json:"firstStep,omitempty"`
}

type SendRequest struct {
	Message     string `json:"message"`
	BusinessID  string `json:"businessId"`
	CustomerID  string `json:"customerId"`
	AgentName   string `json:"agentName"`
	DisplayText string `json:"displayText,omitempty"`
}

type SendResult struct {
	MessageID  string `json:"messageId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
}

type MessageRecord struct {
	ID        string            `json:"_id"`
	Message   string            `json:"message"`
	Sender    string            `json:"sender"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type HistoryResult struct {
	Messages        []MessageRecord      `json:"messages"`
	WorkflowActive  bool                 `json:"workflowActive"`
	WorkflowTrigger string               `json:"workflowTrigger,omitempty"`
	FirstStep       *WorkflowStepPayload `json:"firstStep,omitempty"`
}

type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type faqResult struct {
	DefaultFAQResponses []FAQEntry `json:"defaultFAQResponses"`
}

type apiError struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}
