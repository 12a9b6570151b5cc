package scenario

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Version bool       `short:"v" long:"version" description:"print version and exit"`
	Config  string     `short:"f" long:"config" description:"client config YAML path or URL"`
	Stream  *StreamCmd `command:"stream" description:"Start a simulation job and follow its event stream"`
	Demo    *DemoCmd   `command:"demo" description:"Play a scripted job without a backend"`
	Cancel  *CancelCmd `command:"cancel" description:"Cancel a running job"`
	Retry   *RetryCmd  `command:"retry" description:"Regenerate one result component of a job"`
}

// Init instantiates the sub-command referenced by the first argument so that
// flags.Parse can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "stream":
		o.Stream = &StreamCmd{}
	case "demo":
		o.Demo = &DemoCmd{}
	case "cancel":
		o.Cancel = &CancelCmd{}
	case "retry":
		o.Retry = &RetryCmd{}
	}
}
