package corpus

// Sample returns the built-in preference-drift corpus. It backs unit
// tests and the no-data demo path: one dialogue that only needs a new
// memory, and one whose second session overturns the first.
func Sample() []Dialogue {
	return []Dialogue{
		{
			ID:           "sample-coffee",
			Question:     "What hot drink does the user like?",
			QuestionDate: "2023/06/01 (Thu) 09:00 UTC",
			Answer:       "coffee",
			SessionDates: []string{"2023/05/20 (Sat) 10:00 UTC"},
			Sessions: [][]Message{
				{
					{Role: "user", Content: "I really love coffee in the mornings"},
					{Role: "assistant", Content: "Noted, coffee it is."},
				},
			},
		},
		{
			ID:           "sample-drift",
			Question:     "Which drink does the user prefer now?",
			QuestionDate: "2023/07/15 (Sat) 18:30 UTC",
			Answer:       "coffee",
			SessionDates: []string{
				"2023/06/10 (Sat) 08:15 UTC",
				"2023/07/01 (Sat) 19:45 UTC",
			},
			Sessions: [][]Message{
				{
					{Role: "user", Content: "I love drinking tea in the evenings"},
					{Role: "assistant", Content: "Tea in the evenings, got it."},
				},
				{
					{Role: "user", Content: "I love drinking coffee now, not tea"},
					{Role: "assistant", Content: "Switching that memory over to coffee."},
				},
			},
		},
	}
}
