package observability

// Event levels understood by the deploy event log.
const (
	LevelEvent = "event"
	LevelDebug = "debug"
)

// ComponentDeploy is the component autoscaling decisions are logged under.
const ComponentDeploy = "deploy"

// Event is one line of a service's deploy log.
type Event struct {
	Service   string
	Cluster   string
	Instance  string
	Component string
	Level     string
	Line      string
}

// LogEvent writes a deploy log line. Events at LevelDebug go to the debug
// stream, everything else is logged at info.
func LogEvent(log Logger, ev Event) {
	if ev.Component == "" {
		ev.Component = ComponentDeploy
	}
	if ev.Level == "" {
		ev.Level = LevelEvent
	}
	fields := []Field{
		String("service", ev.Service),
		String("cluster", ev.Cluster),
		String("instance", ev.Instance),
		String("component", ev.Component),
		String("level", ev.Level),
	}
	if ev.Level == LevelDebug {
		log.Debug(ev.Line, fields...)
		return
	}
	log.Info(ev.Line, fields...)
}
