package checkcredits

import "entitlement-workers/internal/common/validation"

// An empty userId is accepted and answered as an anonymous denial.
var inputSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "userId": {"type": "string", "maxLength": 255}
  },
  "required": ["userId"]
}`)

func GetInputSchema() *validation.Schema {
	return inputSchema
}
