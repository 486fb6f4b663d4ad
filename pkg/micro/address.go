package micro

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Subjects follow the convention <prefix>.<node_id>.<endpoint>, e.g. "iris.node-0.tx.submit".
const DefaultPrefix = "iris"

// ServiceAddress names one node's services on the bus.
type ServiceAddress struct {
	Prefix string
	NodeID string
}

// GetAddress returns the address of nodeID under the default prefix.
func GetAddress(nodeID string) *ServiceAddress {
	return &ServiceAddress{Prefix: DefaultPrefix, NodeID: nodeID}
}

// String returns the subject prefix of the address.
func (a *ServiceAddress) String() string {
	return a.Prefix + "." + a.NodeID
}

// Validate checks that the address forms valid subject tokens.
func (a *ServiceAddress) Validate() error {
	for name, token := range map[string]string{"prefix": a.Prefix, "node id": a.NodeID} {
		if token == "" {
			return eris.Errorf("%s cannot be empty", name)
		}
		if strings.ContainsAny(token, ". *>\t\r\n") {
			return eris.Errorf("%s %q contains reserved subject characters", name, token)
		}
	}
	return nil
}

// Endpoint returns the subject of endpoint at address.
func Endpoint(address *ServiceAddress, endpoint string) string {
	return address.String() + "." + endpoint
}
