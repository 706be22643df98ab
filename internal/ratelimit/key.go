package ratelimit

import "fmt"

// KeyForVerify builds the limiter key for verification submissions of one user on one quiz.
func KeyForVerify(userID, quizID uint64) string {
	if userID == 0 || quizID == 0 {
		return ""
	}
	return fmt.Sprintf("verify:u:%d:q:%d", userID, quizID)
}
