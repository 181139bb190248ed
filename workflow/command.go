package workflow

// Control is the control-flow directive a node returns.
type Control string

const (
	// ControlContinue follows the graph's outgoing edges.
	ControlContinue Control = "continue"
	// ControlGoto jumps to a named node.
	ControlGoto Control = "goto"
	// ControlReturn ends the execution with the current state.
	ControlReturn Control = "return"
	// ControlSend fans out dynamic parallel branches.
	ControlSend Control = "send"
)

// SendCommand is one dynamic branch created at runtime.
type SendCommand struct {
	// Target is the node the branch starts at.
	Target string
	// Input is the branch's input value.
	Input Value
	// BranchID optionally labels the branch in trace events.
	BranchID string
}

// Command is the return value of a node function: state updates plus a
// control-flow decision.
type Command struct {
	// Updates are applied to shared state before routing.
	Updates []StateUpdate
	// Route selects conditional edges; edges whose condition equals Route
	// win the tie-break.
	Route string
	// Control decides what happens next. Zero value is Continue.
	Control Control
	// Target is the destination node when Control is Goto.
	Target string
	// Sends are the dynamic branches when Control is Send.
	Sends []SendCommand
	// Output is bound as the successors' input. A null output passes the
	// node's own input through.
	Output Value
}

// NewCommand creates an empty continue command.
func NewCommand() Command { return Command{Control: ControlContinue} }

// Update appends a replace update.
func (c Command) Update(key string, value Value) Command {
	c.Updates = append(c.Updates, Set(key, value))
	return c
}

// Apply appends an arbitrary update.
func (c Command) Apply(update StateUpdate) Command {
	c.Updates = append(c.Updates, update)
	return c
}

// WithRoute sets the conditional-edge route label.
func (c Command) WithRoute(route string) Command {
	c.Route = route
	return c
}

// Goto jumps to a named node.
func (c Command) Goto(node string) Command {
	c.Control = ControlGoto
	c.Target = node
	return c
}

// Return ends the execution.
func (c Command) Return() Command {
	c.Control = ControlReturn
	return c
}

// Send fans out dynamic branches.
func (c Command) Send(sends ...SendCommand) Command {
	c.Control = ControlSend
	c.Sends = sends
	return c
}

// WithOutput sets the value bound as the successors' input.
func (c Command) WithOutput(v Value) Command {
	c.Output = v
	return c
}

// IsReturn reports whether the command ends execution.
func (c Command) IsReturn() bool { return c.Control == ControlReturn }
