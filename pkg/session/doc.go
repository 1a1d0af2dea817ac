// Package session owns the live interview session records.
//
// Invariants:
// - Every live session is reachable through the Store; nothing mutates a
//   Session outside Store.Update, so per-session mutation is serialized.
// - QuestionIndex only grows, by one per completed answer cycle, and never
//   exceeds MaxQuestions.
// - State transitions follow the lifecycle graph; terminal states accept no
//   further transitions.
//
// Usage:
//
//	store := session.NewStore(logger)
//	sess := store.Create(session.Params{TechStack: "Go", Position: "Backend Engineer"})
//	_ = store.Update(sess.ID, func(s *session.Session) error {
//		return s.Transition(session.StateActive)
//	})
package session
