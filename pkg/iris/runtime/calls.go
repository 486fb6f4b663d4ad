package runtime

import (
	"github.com/argus-labs/iris/pkg/iris/types"
)

// Entry point names carried in sign.Transaction.Call.
const (
	CallRegisterContentRequest = "register-content-request"
	CallMintAccess             = "mint-access"
	CallRequestRetrieve        = "request-retrieve"
	CallRequestPin             = "request-pin"
	CallAddValidator           = "add-validator"
	CallRemoveValidator        = "remove-validator"
	CallJoinStoragePool        = "join-storage-pool"
	CallSubmitRPCReady         = "submit-rpc-ready"

	// Submitted by off-chain workers.
	CallReportPublishResult  = "report-publish-result"
	CallReportRetrieveResult = "report-retrieve-result"
	CallReportPinResult      = "report-pin-result"
)

// Payloads that carry account ids implement validator; route rejects them before the call runs.
type validator interface {
	Validate() error
}

type RegisterContentRequest struct {
	Admin     types.AccountID `json:"admin"`
	Address   types.Address   `json:"address"`
	ContentID types.ContentID `json:"contentId"`
	Filename  string          `json:"filename"`
	ClassID   types.ClassID   `json:"classId"`
	Balance   types.Balance   `json:"balance"`
}

type MintAccess struct {
	Beneficiary types.AccountID `json:"beneficiary"`
	ClassID     types.ClassID   `json:"classId"`
	Amount      types.Balance   `json:"amount"`
}

type RequestRetrieve struct {
	Owner   types.AccountID `json:"owner"`
	ClassID types.ClassID   `json:"classId"`
}

type RequestPin struct {
	ClassID types.ClassID `json:"classId"`
}

// ValidatorChange is the payload of add-validator and remove-validator.
type ValidatorChange struct {
	Account types.AccountID `json:"account"`
}

type JoinStoragePool struct {
	Beneficiary types.AccountID `json:"beneficiary"`
	ClassID     types.ClassID   `json:"classId"`
}

type SubmitRPCReady struct {
	Value uint64 `json:"value"`
}

// ReportPublishResult acknowledges that the content of a Publish command was added to the
// reporting node. CommandID is the queue entry the report answers.
type ReportPublishResult struct {
	Admin     types.AccountID `json:"admin"`
	ContentID types.ContentID `json:"contentId"`
	ClassID   types.ClassID   `json:"classId"`
	Balance   types.Balance   `json:"balance"`
	CommandID string          `json:"commandId"`
}

type ReportRetrieveResult struct {
	ClassID   types.ClassID   `json:"classId"`
	Requester types.AccountID `json:"requester"`
	CommandID string          `json:"commandId"`
}

type ReportPinResult struct {
	ClassID   types.ClassID   `json:"classId"`
	ContentID types.ContentID `json:"contentId"`
	CommandID string          `json:"commandId"`
}

func (p RegisterContentRequest) Validate() error { return p.Admin.Validate() }

func (p MintAccess) Validate() error { return p.Beneficiary.Validate() }

// Validate leaves an empty owner to the intake, which reports it as an unknown owner.
func (p RequestRetrieve) Validate() error {
	if p.Owner == "" {
		return nil
	}
	return p.Owner.Validate()
}

func (p ValidatorChange) Validate() error { return p.Account.Validate() }

func (p JoinStoragePool) Validate() error { return p.Beneficiary.Validate() }

func (p ReportPublishResult) Validate() error { return p.Admin.Validate() }

func (p ReportRetrieveResult) Validate() error { return p.Requester.Validate() }
