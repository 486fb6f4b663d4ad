package server

import (
	"strconv"

	"github.com/argus-labs/iris/pkg/iris/pool"
	"github.com/argus-labs/iris/pkg/iris/runtime"
	"github.com/argus-labs/iris/pkg/iris/types"
	"github.com/argus-labs/iris/pkg/sign"
	"github.com/gofiber/fiber/v2"
)

type HealthReply struct {
	IsServerRunning bool           `json:"isServerRunning"`
	Status          runtime.Status `json:"status"`
}

func (s *Server) getHealth(c *fiber.Ctx) error {
	status, err := s.rt.Status(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(HealthReply{IsServerRunning: true, Status: status})
}

type ReadyReply struct {
	Ready  bool             `json:"ready"`
	Node   types.AccountID  `json:"node"`
	Signal pool.ReadySignal `json:"signal"`
}

// getReady reports the last readiness signal this node submitted. A node that never signaled is
// not ready.
func (s *Server) getReady(c *fiber.Ctx) error {
	signal, ok, err := s.rt.Ready(c.UserContext(), s.node)
	if err != nil {
		return err
	}
	reply := ReadyReply{Ready: ok, Node: s.node, Signal: signal}
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(reply)
	}
	return c.JSON(reply)
}

type ContentReply struct {
	Admin     types.AccountID   `json:"admin"`
	ClassID   types.ClassID     `json:"classId"`
	ContentID types.ContentID   `json:"contentId"`
	Providers []types.AccountID `json:"providers"`
}

func (s *Server) getContent(c *fiber.Ctx) error {
	admin := types.AccountID(c.Params("admin"))
	id, err := classParam(c)
	if err != nil {
		return err
	}

	content, ok, err := s.rt.LookupOwnedContentID(c.UserContext(), admin, id)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no content registered for admin and class")
	}

	providers, err := s.rt.Providers(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(ContentReply{Admin: admin, ClassID: id, ContentID: content, Providers: providers})
}

type AccessReply struct {
	Beneficiary types.AccountID `json:"beneficiary"`
	ClassID     types.ClassID   `json:"classId"`
	Admin       types.AccountID `json:"admin"`
	Balance     types.Balance   `json:"balance"`
}

func (s *Server) getAccess(c *fiber.Ctx) error {
	beneficiary := types.AccountID(c.Params("beneficiary"))
	id, err := classParam(c)
	if err != nil {
		return err
	}

	admin, ok, err := s.rt.AccessAdmin(c.UserContext(), beneficiary, id)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "beneficiary holds no access grant for class")
	}

	balance, err := s.rt.Balance(c.UserContext(), id, beneficiary)
	if err != nil {
		return err
	}
	return c.JSON(AccessReply{Beneficiary: beneficiary, ClassID: id, Admin: admin, Balance: balance})
}

func (s *Server) getValidators(c *fiber.Ctx) error {
	set, err := s.rt.Validators(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(set)
}

func (s *Server) getRewards(c *fiber.Ctx) error {
	epoch, err := strconv.ParseUint(c.Params("epoch"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid epoch: "+err.Error())
	}
	id, err := classParam(c)
	if err != nil {
		return err
	}

	record, err := s.rt.RewardPoints(c.UserContext(), epoch, id)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

type QueuedCommand struct {
	ID      string        `json:"id"`
	Cycle   uint64        `json:"cycle"`
	Kind    string        `json:"kind"`
	Command types.Command `json:"command"`
}

func (s *Server) getQueue(c *fiber.Ctx) error {
	pending := s.rt.PendingCommands()
	reply := make([]QueuedCommand, 0, len(pending))
	for _, e := range pending {
		reply = append(reply, QueuedCommand{
			ID:      e.ID.String(),
			Cycle:   e.Cycle,
			Kind:    e.Command.Kind().String(),
			Command: e.Command,
		})
	}
	return c.JSON(reply)
}

// getRetrieved returns the raw bytes a worker retrieved for requester under class.
func (s *Server) getRetrieved(c *fiber.Ctx) error {
	requester := types.AccountID(c.Params("requester"))
	if err := requester.Validate(); err != nil {
		return err
	}
	id, err := classParam(c)
	if err != nil {
		return err
	}

	data, ok, err := s.local.Get(c.UserContext(), requester, id)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no content retrieved for requester and class")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}

// PostTransactionReply is returned for an accepted transaction. Acceptance means the transaction
// entered the mempool; its outcome is recorded in the receipt of the block that applies it.
type PostTransactionReply struct {
	TxHash string `json:"txHash"`
}

func (s *Server) postTransaction(c *fiber.Ctx) error {
	tx := new(sign.Transaction)
	if err := c.BodyParser(tx); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse request body: "+err.Error())
	}

	hash, err := s.rt.Submit(c.UserContext(), tx)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(PostTransactionReply{TxHash: hash})
}

func classParam(c *fiber.Ctx) (types.ClassID, error) {
	id, err := strconv.ParseUint(c.Params("class"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid class id: "+err.Error())
	}
	return types.ClassID(id), nil
}
