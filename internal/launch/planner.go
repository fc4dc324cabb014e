package launch

// Identifiers of the planner system test.
const (
	PlannerPackage    = "nav2_navfn_planner"
	PlannerExecutable = "navfn_planner"

	// PlannerNodeName is the name the planner node registers under. The
	// lifecycle manager addresses it by this name.
	PlannerNodeName = "navfn_planner"

	LifecycleManagerPackage    = "nav2_lifecycle_manager"
	LifecycleManagerExecutable = "lifecycle_manager"
	LifecycleManagerName       = "lifecycle_manager"

	PlannerTestName = "test_planner_node"

	// TestExecutableEnv holds the path of the compiled test binary.
	TestExecutableEnv = "TEST_EXECUTABLE"
)

// NewPlannerDescription returns the planner node and the lifecycle
// manager that brings it up.
func NewPlannerDescription() *Description {
	planner := &Node{
		Package:    PlannerPackage,
		Executable: PlannerExecutable,
		Output:     OutputScreen,
	}
	lifecycleManager := &Node{
		Package:    LifecycleManagerPackage,
		Executable: LifecycleManagerExecutable,
		Name:       LifecycleManagerName,
		Output:     OutputScreen,
		Parameters: Parameters{
			{Name: "node_names", Value: []string{PlannerNodeName}},
			{Name: "autostart", Value: true},
		},
	}
	return NewDescription(planner, lifecycleManager)
}

// NewPlannerTestAction returns the test process. The executable is used
// as given; an empty path fails when the process is started.
func NewPlannerTestAction(executable string) *ExecuteProcess {
	return &ExecuteProcess{
		Cmd:    []string{executable},
		Name:   PlannerTestName,
		Output: OutputScreen,
	}
}
