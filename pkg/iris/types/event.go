package types

// Event is a notification emitted by a successful call.
type Event interface {
	EventName() string
}

type QueuedDataToAdd struct {
	Admin   AccountID `json:"admin"`
	ClassID ClassID   `json:"classId"`
}

type QueuedDataToCat struct {
	Requester AccountID `json:"requester"`
	ClassID   ClassID   `json:"classId"`
}

type QueuedDataToPin struct {
	Requester AccountID `json:"requester"`
	ClassID   ClassID   `json:"classId"`
}

type AssetClassCreated struct {
	ClassID ClassID `json:"classId"`
}

type AssetCreated struct {
	ClassID     ClassID   `json:"classId"`
	Beneficiary AccountID `json:"beneficiary"`
	Amount      Balance   `json:"amount"`
}

type ValidatorAdded struct {
	Account AccountID `json:"account"`
}

type ValidatorRemoved struct {
	Account AccountID `json:"account"`
}

type StorageProviderJoined struct {
	Provider AccountID `json:"provider"`
	ClassID  ClassID   `json:"classId"`
}

type RewardPointAwarded struct {
	Epoch     uint64    `json:"epoch"`
	ClassID   ClassID   `json:"classId"`
	Validator AccountID `json:"validator"`
}

type RPCReady struct {
	Account AccountID `json:"account"`
	Value   uint64    `json:"value"`
}

func (QueuedDataToAdd) EventName() string       { return "QueuedDataToAdd" }
func (QueuedDataToCat) EventName() string       { return "QueuedDataToCat" }
func (QueuedDataToPin) EventName() string       { return "QueuedDataToPin" }
func (AssetClassCreated) EventName() string     { return "AssetClassCreated" }
func (AssetCreated) EventName() string          { return "AssetCreated" }
func (ValidatorAdded) EventName() string        { return "ValidatorAdded" }
func (ValidatorRemoved) EventName() string      { return "ValidatorRemoved" }
func (StorageProviderJoined) EventName() string { return "StorageProviderJoined" }
func (RewardPointAwarded) EventName() string    { return "RewardPointAwarded" }
func (RPCReady) EventName() string              { return "RpcReady" }
