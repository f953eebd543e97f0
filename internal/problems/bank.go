package problems

import "github.com/olymp/arena/internal/models"

// StarterBank is the problem set loaded by the seed tool and by the
// in-memory store in development.
func StarterBank() []models.Problem {
	return []models.Problem{
		{Title: "Capitals", Text: "What is the capital of Australia?", CorrectAnswer: "Canberra", IsActive: true},
		{Title: "Arithmetic", Text: "What is 17 * 23?", CorrectAnswer: "391", IsActive: true},
		{Title: "Primes", Text: "What is the smallest prime greater than 100?", CorrectAnswer: "101", IsActive: true},
		{Title: "Chemistry", Text: "Which element has the symbol W?", CorrectAnswer: "Tungsten", IsActive: true},
		{Title: "Geometry", Text: "How many diagonals does a convex hexagon have?", CorrectAnswer: "9", IsActive: true},
		{Title: "History", Text: "In which year did the Berlin Wall fall?", CorrectAnswer: "1989", IsActive: true},
		{Title: "Literature", Text: "Who wrote \"War and Peace\"?", CorrectAnswer: "Leo Tolstoy", IsActive: true},
		{Title: "Sequences", Text: "Next term: 1, 1, 2, 3, 5, 8, ...?", CorrectAnswer: "13", IsActive: true},
	}
}
