package model

import "time"

// RequestStatus is the lifecycle state of a fundable issue.
type RequestStatus string

const (
	RequestStatusOpen           RequestStatus = "OPEN"
	RequestStatusFunded         RequestStatus = "FUNDED"
	RequestStatusClaimable      RequestStatus = "CLAIMABLE"
	RequestStatusClaimRequested RequestStatus = "CLAIM_REQUESTED"
	RequestStatusClaimed        RequestStatus = "CLAIMED"
	RequestStatusClosed         RequestStatus = "CLOSED"
)

// Platform identifies the issue tracker hosting a request.
type Platform string

const (
	PlatformGithub        Platform = "GITHUB"
	PlatformStackOverflow Platform = "STACK_OVERFLOW"
)

// IssueInformation locates the issue behind a request. Platform and PlatformID
// form the key used by the on-chain repositories.
type IssueInformation struct {
	Platform   Platform `json:"platform"`
	PlatformID string   `json:"platform_id"`
	Link       string   `json:"link,omitempty"`
	Owner      string   `json:"owner,omitempty"`
	Repo       string   `json:"repo,omitempty"`
	Number     string   `json:"number,omitempty"`
	Title      string   `json:"title,omitempty"`
}

// Request is a fundable issue.
type Request struct {
	ID               int64            `json:"id"`
	Status           RequestStatus    `json:"status"`
	IssueInformation IssueInformation `json:"issue_information"`
	CreatedAt        time.Time        `json:"created_at"`
}

// IsClaimed reports whether payouts for the request have been made.
func (r Request) IsClaimed() bool {
	return r.Status == RequestStatusClaimed
}
