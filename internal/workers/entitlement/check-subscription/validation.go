package checksubscription

import "entitlement-workers/internal/common/validation"

const inputSchemaJSON = `{
  "type": "object",
  "properties": {
    "userId":      {"type": "string", "maxLength": 255},
    "accessToken": {"type": "string", "minLength": 1, "maxLength": 8192}
  },
  "anyOf": [
    {"required": ["userId"]},
    {"required": ["accessToken"]}
  ]
}`

var inputSchema = validation.MustCompile(inputSchemaJSON)

func GetInputSchema() *validation.Schema {
	return inputSchema
}
