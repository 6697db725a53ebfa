package domain

import "time"

// SessionStatus is derived from a session and its confirmation/rejection entities.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionScheduled SessionStatus = "scheduled"
	SessionCompleted SessionStatus = "completed"
	SessionDeclined  SessionStatus = "declined"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionScheduled, SessionCompleted, SessionDeclined:
		return true
	}
	return false
}

// Profile is a wallet's public mentorship profile. Profiles are append-only;
// the newest one per wallet is current.
type Profile struct {
	Key                string            `json:"key"`
	Wallet             string            `json:"wallet"`
	DisplayName        string            `json:"displayName"`
	Username           string            `json:"username,omitempty"`
	Bio                string            `json:"bio,omitempty"`
	Timezone           string            `json:"timezone,omitempty"`
	Languages          []string          `json:"languages,omitempty"`
	Skills             []string          `json:"skills,omitempty"`
	Seniority          string            `json:"seniority,omitempty"`
	ContactLinks       map[string]string `json:"contactLinks,omitempty"`
	AvailabilityWindow string            `json:"availabilityWindow,omitempty"`
	SpaceID            string            `json:"spaceId"`
	CreatedAt          time.Time         `json:"createdAt"`
	TxHash             string            `json:"txHash,omitempty"`
	AverageRating      float64           `json:"averageRating"`
	FeedbackCount      int               `json:"feedbackCount"`
}

// Ask is a learner's request for help with one skill.
type Ask struct {
	Key        string    `json:"key"`
	Wallet     string    `json:"wallet"`
	Skill      string    `json:"skill"`
	SkillLabel string    `json:"skillLabel"`
	SpaceID    string    `json:"spaceId"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	TTLSeconds int       `json:"ttlSeconds"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TxHash     string    `json:"txHash,omitempty"`
}

// Offer is a mentor's availability posting for one skill.
type Offer struct {
	Key                string    `json:"key"`
	Wallet             string    `json:"wallet"`
	Skill              string    `json:"skill"`
	SkillLabel         string    `json:"skillLabel"`
	SpaceID            string    `json:"spaceId"`
	Status             string    `json:"status"`
	Message            string    `json:"message"`
	AvailabilityWindow string    `json:"availabilityWindow,omitempty"`
	TTLSeconds         int       `json:"ttlSeconds"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	TxHash             string    `json:"txHash,omitempty"`
}

// Session is a scheduled mentor/learner meeting with its derived status.
type Session struct {
	Key                string            `json:"key"`
	MentorWallet       string            `json:"mentorWallet"`
	LearnerWallet      string            `json:"learnerWallet"`
	RequesterWallet    string            `json:"requesterWallet"`
	Skill              string            `json:"skill"`
	SkillLabel         string            `json:"skillLabel"`
	SpaceID            string            `json:"spaceId"`
	SessionDate        time.Time         `json:"sessionDate"`
	DurationMinutes    int               `json:"duration"`
	Notes              string            `json:"notes,omitempty"`
	Status             SessionStatus     `json:"status"`
	ConfirmedByMentor  bool              `json:"confirmedByMentor"`
	ConfirmedByLearner bool              `json:"confirmedByLearner"`
	Rejection          *SessionRejection `json:"rejection,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	TxHash             string            `json:"txHash,omitempty"`
}

// EndsAt returns when the session is over.
func (s Session) EndsAt() time.Time {
	return s.SessionDate.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Participant reports whether wallet is the mentor or the learner.
func (s Session) Participant(wallet string) bool {
	return wallet != "" && (wallet == s.MentorWallet || wallet == s.LearnerWallet)
}

// Counterpart returns the other participant.
func (s Session) Counterpart(wallet string) string {
	if wallet == s.MentorWallet {
		return s.LearnerWallet
	}
	return s.MentorWallet
}

// SessionRejection records who declined a session.
type SessionRejection struct {
	Key        string    `json:"key"`
	RejectedBy string    `json:"rejectedBy"`
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejectedAt"`
}

// Feedback is one participant's review of a completed session.
type Feedback struct {
	Key                 string    `json:"key"`
	SessionKey          string    `json:"sessionKey"`
	MentorWallet        string    `json:"mentorWallet"`
	LearnerWallet       string    `json:"learnerWallet"`
	FeedbackFrom        string    `json:"feedbackFrom"`
	FeedbackTo          string    `json:"feedbackTo"`
	Rating              int       `json:"rating"`
	Notes               string    `json:"notes,omitempty"`
	TechnicalDxFeedback string    `json:"technicalDxFeedback,omitempty"`
	SpaceID             string    `json:"spaceId"`
	CreatedAt           time.Time `json:"createdAt"`
	TxHash              string    `json:"txHash,omitempty"`
}

// TrustEdge is a directed reputation relationship between two wallets.
type TrustEdge struct {
	Key        string    `json:"key"`
	FromWallet string    `json:"fromWallet"`
	ToWallet   string    `json:"toWallet"`
	Kind       string    `json:"kind"`
	Strength   int       `json:"strength"`
	Context    string    `json:"context,omitempty"`
	SpaceID    string    `json:"spaceId"`
	CreatedAt  time.Time `json:"createdAt"`
	TxHash     string    `json:"txHash,omitempty"`
}

// Match pairs an open ask with an active offer on the same skill.
type Match struct {
	Skill string `json:"skill"`
	Ask   Ask    `json:"ask"`
	Offer Offer  `json:"offer"`
}

// Dashboard is everything MentorGraph knows about one wallet.
type Dashboard struct {
	Wallet           string                `json:"wallet"`
	Profile          *Profile              `json:"profile,omitempty"`
	Asks             []Ask                 `json:"asks"`
	Offers           []Offer               `json:"offers"`
	Sessions         []Session             `json:"sessions"`
	SessionCounts    map[SessionStatus]int `json:"sessionCounts"`
	FeedbackReceived []Feedback            `json:"feedbackReceived"`
	TrustEdges       []TrustEdge           `json:"trustEdges"`
}
