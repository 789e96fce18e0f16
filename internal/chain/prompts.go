package chain

import (
	"fmt"
	"strings"
)

const generationGuidelines = `Guidelines:
- Generate syntactically correct SQL
- Use table aliases for readability
- Include appropriate JOINs for multi-table queries
- Add WHERE clauses for filtering
- Use aggregate functions (COUNT, SUM, AVG) when needed
- Format dates properly
- Handle NULL values appropriately
- Return ONLY the SQL query in a ` + "```sql" + ` code block`

// Example is a question paired with the SQL that answers it.
type Example struct {
	Question string `json:"question" yaml:"question"`
	SQL      string `json:"sql" yaml:"sql"`
}

// SystemPrompt builds the instruction sent ahead of the user's question.
func SystemPrompt(schemaContext string, examples []Example) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL query generator. Convert natural language questions into SQL queries.\n\n")
	b.WriteString("Database Schema:\n")
	b.WriteString(schemaContext)
	b.WriteString("\n\n")
	b.WriteString(generationGuidelines)
	b.WriteString("\n")

	if len(examples) > 0 {
		b.WriteString("\nExamples:\n")
		b.WriteString(FormatExamples(examples))
		b.WriteString("\n")
	}
	return b.String()
}

// ExplainPrompt asks for a plain-language description of sql.
func ExplainPrompt(sql, schemaContext string) string {
	return fmt.Sprintf(`Explain the following SQL query in simple terms:

SQL Query:
%s

Database Schema:
%s

Provide a clear, concise explanation of what this query does.`, sql, schemaContext)
}

// FormatExamples renders few-shot examples, numbered from 1.
func FormatExamples(examples []Example) string {
	parts := make([]string, len(examples))
	for i, ex := range examples {
		parts[i] = fmt.Sprintf("Example %d:\nQuestion: %s\nSQL: %s\n", i+1, ex.Question, ex.SQL)
	}
	return strings.Join(parts, "\n")
}
