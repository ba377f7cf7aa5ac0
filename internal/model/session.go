package model

// Session 협업 세션 (참가자 목록 + 활성 상태)
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    int64         `json:"createdAt"`
	Participants []Participant `json:"participants"`
	IsActive     bool          `json:"isActive"`
}

// Participant 세션 참가자
type Participant struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	IsHost         bool   `json:"isHost"`
	JoinedAt       int64  `json:"joinedAt"`
	IsVideoEnabled bool   `json:"isVideoEnabled"`
	IsAudioEnabled bool   `json:"isAudioEnabled"`
}

// ParticipantUpdate is a partial update of a participant. ID, IsHost and
// JoinedAt are not updatable.
type ParticipantUpdate struct {
	Username       *string `json:"username,omitempty"`
	IsVideoEnabled *bool   `json:"isVideoEnabled,omitempty"`
	IsAudioEnabled *bool   `json:"isAudioEnabled,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ParticipantUpdate) Empty() bool {
	return u.Username == nil && u.IsVideoEnabled == nil && u.IsAudioEnabled == nil
}

// Apply merges the set fields into p.
func (u ParticipantUpdate) Apply(p *Participant) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.IsVideoEnabled != nil {
		p.IsVideoEnabled = *u.IsVideoEnabled
	}
	if u.IsAudioEnabled != nil {
		p.IsAudioEnabled = *u.IsAudioEnabled
	}
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Participants = make([]Participant, len(s.Participants))
	copy(out.Participants, s.Participants)
	return out
}

// Participant returns the participant with the given id.
func (s *Session) Participant(id string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// HasParticipant reports whether id is on the roster.
func (s *Session) HasParticipant(id string) bool {
	_, ok := s.Participant(id)
	return ok
}

// Host returns the host participant if still on the roster.
func (s *Session) Host() (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].IsHost {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

// RemoveParticipant drops id from the roster and returns the removed entry.
func (s *Session) RemoveParticipant(id string) (Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			removed := s.Participants[i]
			s.Participants = append(s.Participants[:i:i], s.Participants[i+1:]...)
			return removed, true
		}
	}
	return Participant{}, false
}
