package types

// Command is a pending unit of off-chain work. The concrete types are Publish, Retrieve and Pin.
type Command interface {
	Kind() CommandKind
	Class() ClassID
	isCommand()
}

type CommandKind uint8

const (
	KindPublish CommandKind = iota + 1
	KindRetrieve
	KindPin
)

func (k CommandKind) String() string {
	switch k {
	case KindPublish:
		return "publish"
	case KindRetrieve:
		return "retrieve"
	case KindPin:
		return "pin"
	default:
		return "unknown"
	}
}

// Publish asks a worker to fetch ContentID from Address, add it to its local storage node and
// report the result so the class can be registered under Admin.
type Publish struct {
	Address   Address   `json:"address"`
	ContentID ContentID `json:"contentId"`
	Admin     AccountID `json:"admin"`
	Filename  string    `json:"filename"`
	ClassID   ClassID   `json:"classId"`
	Balance   Balance   `json:"balance"`
}

// Retrieve asks a worker to fetch the content of Owner's class into off-chain storage for
// Requester.
type Retrieve struct {
	Requester AccountID `json:"requester"`
	Owner     AccountID `json:"owner"`
	ClassID   ClassID   `json:"classId"`
}

// Pin asks a worker to pin ContentID on its local storage node.
type Pin struct {
	Requester AccountID `json:"requester"`
	ClassID   ClassID   `json:"classId"`
	ContentID ContentID `json:"contentId"`
}

func (Publish) Kind() CommandKind  { return KindPublish }
func (Retrieve) Kind() CommandKind { return KindRetrieve }
func (Pin) Kind() CommandKind      { return KindPin }

func (c Publish) Class() ClassID  { return c.ClassID }
func (c Retrieve) Class() ClassID { return c.ClassID }
func (c Pin) Class() ClassID      { return c.ClassID }

func (Publish) isCommand()  {}
func (Retrieve) isCommand() {}
func (Pin) isCommand()      {}
