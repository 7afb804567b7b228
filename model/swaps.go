package model

import "time"

// SwapStatus is the lifecycle status of a swap request.
type SwapStatus string

// The statuses a swap request can be in.
const (
	SwapPending   SwapStatus = "PENDING"
	SwapAccepted  SwapStatus = "ACCEPTED"
	SwapRejected  SwapStatus = "REJECTED"
	SwapCancelled SwapStatus = "CANCELLED"
	SwapCompleted SwapStatus = "COMPLETED"
)

var swapTransitions = map[SwapStatus][]SwapStatus{
	SwapPending:  {SwapAccepted, SwapRejected, SwapCancelled},
	SwapAccepted: {SwapCompleted},
}

// CanTransition returns true if a swap request may move from one status to the other.
func (s SwapStatus) CanTransition(to SwapStatus) bool {
	for _, next := range swapTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal returns true if no transition leaves the status.
func (s SwapStatus) Terminal() bool {
	return len(swapTransitions[s]) == 0
}

// Valid returns true if the status is one of the known statuses.
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapPending, SwapAccepted, SwapRejected, SwapCancelled, SwapCompleted:
		return true
	}
	return false
}

// SwapRequest is a proposal by one user to exchange a skill they offer for a skill another user offers.
type SwapRequest struct {
	ID             string     `json:"id"`
	SenderID       string     `json:"senderId"`
	ReceiverID     string     `json:"receiverId"`
	OfferedSkill   string     `json:"offeredSkill"`
	RequestedSkill string     `json:"requestedSkill"`
	Message        string     `json:"message,omitempty"`
	Status         SwapStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Involves returns true if the user is either party of the swap request.
func (r *SwapRequest) Involves(userID string) bool {
	return r.SenderID == userID || r.ReceiverID == userID
}

// Counterpart returns the identifier of the other party of the swap request.
func (r *SwapRequest) Counterpart(userID string) string {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

// SwapRole selects which side of a swap request a listing should include.
type SwapRole string

// The roles that a listing can be restricted to.
const (
	SwapRoleAny      SwapRole = ""
	SwapRoleSender   SwapRole = "sent"
	SwapRoleReceiver SwapRole = "received"
)

// SwapFilter narrows down a swap request listing for a single user.
type SwapFilter struct {
	UserID string
	Role   SwapRole
	Status SwapStatus
	Limit  uint64
	Offset uint64
}

// Feedback is a rating left by one party of a completed swap for the other party.
type Feedback struct {
	ID         string    `json:"id"`
	SwapID     string    `json:"swapId"`
	GiverID    string    `json:"giverId"`
	ReceiverID string    `json:"receiverId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// User is the subset of a user profile that the swap and notification services need.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	IsActive bool   `json:"isActive"`
	IsPublic bool   `json:"isPublic"`
}
