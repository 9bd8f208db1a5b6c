package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// CalculatorTool returns the built-in arithmetic tool. Invalid
// operations and division by zero produce an error payload in the
// result JSON rather than a Go error — the model reads the payload and
// can correct itself on the next turn.
func CalculatorTool() *Tool {
	return &Tool{
		Name:        "calculator",
		Description: "Perform basic arithmetic on two numbers. Supports add, sub, mul, and div.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"first_num": map[string]any{
					"type":        "number",
					"description": "The first operand",
				},
				"second_num": map[string]any{
					"type":        "number",
					"description": "The second operand",
				},
				"operation": map[string]any{
					"type":        "string",
					"description": "The operation to perform: add, sub, mul, or div",
					"enum":        []string{"add", "sub", "mul", "div"},
				},
			},
			"required": []string{"first_num", "second_num", "operation"},
		},
		Handler: handleCalculator,
	}
}

func handleCalculator(_ context.Context, args map[string]any) (string, error) {
	first, ok := toFloat(args["first_num"])
	if !ok {
		return errorPayload("first_num must be a number")
	}
	second, ok := toFloat(args["second_num"])
	if !ok {
		return errorPayload("second_num must be a number")
	}
	operation, _ := args["operation"].(string)

	// Models sometimes spell the operations out despite the schema, so
	// the long forms are accepted as aliases.
	var result float64
	switch operation {
	case "add":
		result = first + second
	case "sub", "subtract":
		result = first - second
	case "mul", "multiply":
		result = first * second
	case "div", "divide":
		if second == 0 {
			return errorPayload("division by zero is not allowed")
		}
		result = first / second
	default:
		return errorPayload(fmt.Sprintf("unsupported operation %q", operation))
	}

	out, err := json.Marshal(map[string]any{
		"first_num":  first,
		"second_num": second,
		"operation":  operation,
		"result":     result,
	})
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}

// errorPayload wraps a tool-level problem as JSON data for the model.
func errorPayload(msg string) (string, error) {
	out, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return "", fmt.Errorf("marshal error payload: %w", err)
	}
	return string(out), nil
}
