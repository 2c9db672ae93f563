package generator

import (
	"fmt"
	"strings"
)

// Categories are the tool types a generated tool may declare
var Categories = []string{
	"Crypto",
	"Converter",
	"Web",
	"Images & Videos",
	"Development",
	"Network",
	"Math",
	"Measurement",
	"Text",
	"Data",
}

const systemPrompt = `You are a JavaScript code generator. You answer with a single JSON object describing one tool and nothing else.`

const promptTemplate = `Analyze the query: %s

Write a complete browser-safe JavaScript function based on the query. The function must follow these rules:

1. Dynamically load any required external library by injecting a <script> tag, only when it is not already loaded, and use its global object (for example window.QRCode).
2. Do not take or require an element ID input. Do not modify the page; draw visual results on an off-screen canvas.
3. Return meaningful output:
   - visual results as a "data:image/png;base64,..." string from canvas.toDataURL()
   - calculations or text as a string, number, array or object
   - on failure return a string starting with "Error: " instead of throwing
4. Only browser-safe JavaScript: no require(), import, fs or other Node.js features.
5. Handle asynchronous work with await or a Promise.

Each element of inputs is one positional parameter of the function, in order.
Allowed input types: %s.
select and radio inputs need "options": [{"value": "...", "label": "..."}]; number and range inputs may set "min" and "max".

Respond with a JSON object with exactly these fields:
- "human_readable_function_title": short title for people
- "function_title": the exact name of the function
- "function_description": one sentence describing the function
- "tool_type": one of %s
- "code": the complete function source
- "inputs": list of {"type", "human_readable_title", ...}
- "output": an example result`

var inputTypes = []string{"text", "number", "checkbox", "switch", "select", "radio", "range", "file", "json"}

func buildPrompt(query string) string {
	quoted := make([]string, len(Categories))
	for i, c := range Categories {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(promptTemplate, query, strings.Join(inputTypes, ", "), strings.Join(quoted, ", "))
}
