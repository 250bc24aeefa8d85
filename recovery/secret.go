package recovery

import (
	"fmt"
	"strings"
	"unicode"

	"zerokey/hashpack"
)

// MinAnswers is the number of question/answer pairs an account must use.
const MinAnswers = 3

// Answer is one security question and the user's answer to it.
type Answer struct {
	Question string
	Answer   string
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// SerializeQuestionsAndAnswers concatenates every question and its answer in
// order, with all whitespace removed and no separators.
func SerializeQuestionsAndAnswers(answers []Answer) (string, error) {
	if len(answers) < MinAnswers {
		return "", fmt.Errorf("%w: %d answers, need %d", ErrInvalidAnswers, len(answers), MinAnswers)
	}
	seen := make(map[string]bool, len(answers))
	var b strings.Builder
	for i, a := range answers {
		q, ans := stripSpace(a.Question), stripSpace(a.Answer)
		if q == "" || ans == "" {
			return "", fmt.Errorf("%w: pair %d is empty", ErrInvalidAnswers, i)
		}
		if seen[q] {
			return "", fmt.Errorf("%w: question %q repeated", ErrInvalidAnswers, a.Question)
		}
		seen[q] = true
		b.WriteString(q)
		b.WriteString(ans)
	}
	return b.String(), nil
}

// Commitment returns the on-chain commitment of secret, sha256(sha512(secret)).
func Commitment(secret string) ([32]byte, error) {
	_, c, err := hashpack.SecretCommitment(secret)
	return c, err
}
