//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// Verdict is the outcome of evaluating a single message
// ENUM(clean,spam)
type Verdict string
