package llm

// Session is a chat transcript with a fixed system instruction and at most
// one user turn. It is a value: WithUser returns a new session and leaves
// the receiver untouched, so one session can seed many concurrent calls.
type Session struct {
	system  string
	user    string
	hasUser bool
}

// OpenSession starts a session with the given system instruction.
func OpenSession(system string) Session {
	return Session{system: system}
}

// WithUser returns a copy of s whose user turn is content. Any previous
// user turn is replaced.
func (s Session) WithUser(content string) Session {
	s.user = content
	s.hasUser = true
	return s
}

// Messages returns the transcript in send order.
func (s Session) Messages() []Message {
	msgs := []Message{{Role: RoleSystem, Content: s.system}}
	if s.hasUser {
		msgs = append(msgs, Message{Role: RoleUser, Content: s.user})
	}
	return msgs
}

// Text renders the transcript as a single prompt, used when counting
// tokens.
func (s Session) Text() string {
	if !s.hasUser {
		return s.system
	}
	return s.system + "\n" + s.user
}
