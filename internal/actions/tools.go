package actions

// Tool declares one callable action to the text-generation provider.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tools returns the JSON-schema declaration of every action, in catalogue order.
func Tools() []Tool {
	out := make([]Tool, 0, len(order))
	for _, name := range order {
		s := catalogue[name]
		props := make(map[string]any, len(s.fields))
		required := []string{}
		for _, f := range s.fields {
			props[f.name] = f.jsonSchema()
			if f.required {
				required = append(required, f.name)
			}
		}
		out = append(out, Tool{
			Name:        string(name),
			Description: s.info.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return out
}

func (f field) jsonSchema() map[string]any {
	p := map[string]any{}
	switch f.kind {
	case kindInt:
		p["type"] = "integer"
		p["minimum"] = f.min
		p["maximum"] = f.max
	case kindMoney:
		p["type"] = "number"
		p["exclusiveMinimum"] = 0
		p["maximum"] = f.max
	case kindEnum:
		p["type"] = "string"
		p["enum"] = f.enum
	case kindText:
		p["type"] = "string"
		if f.min > 0 {
			p["minLength"] = f.min
		}
		if f.max > 0 {
			p["maxLength"] = f.max
		}
	case kindDateTime:
		p["type"] = "string"
		p["description"] = "Date and time, ISO 8601 (e.g. 2025-03-14T14:00), in the user's timezone"
	case kindDate:
		p["type"] = "string"
		p["description"] = "Date, YYYY-MM-DD"
	case kindEmail:
		p["type"] = "string"
		p["format"] = "email"
	default:
		p["type"] = "string"
	}
	if f.desc != "" {
		p["description"] = f.desc
	}
	return p
}
