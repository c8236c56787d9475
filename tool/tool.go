package tool

// Tool is a function declaration offered to the model in the setup frame.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeBoolean = "BOOLEAN"
)

// ExecuteName is the name of the delegation tool understood by the OpenClaw backend.
const ExecuteName = "execute"

// Execute declares the single delegation tool: the model hands a natural
// language task to the assistant backend and speaks the result.
func Execute() Tool {
	return Tool{
		Name: ExecuteName,
		Description: "Your only way to take action. Delegates a task to the personal assistant, " +
			"which can send messages, search the web, manage lists and reminders, control apps " +
			"and remember things. Describe the task in full, including names, content and platform.",
		Parameters: Parameters{
			Type: TypeObject,
			Properties: Properties{
				"task": {
					Type:        TypeString,
					Description: "Clear, detailed description of what to do.",
				},
			},
			Required: []string{"task"},
		},
	}
}
