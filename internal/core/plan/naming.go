package plan

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// NetworkName generates the network name for a stack.
// Pattern: devstack_{stackName}
func NetworkName(stackName string) string {
	return fmt.Sprintf("devstack_%s", stackName)
}

// VolumeName generates a named volume's name within a stack.
// Pattern: devstack_{stackName}_{volumeName}
func VolumeName(stackName, volumeName string) string {
	return fmt.Sprintf("devstack_%s_%s", stackName, volumeName)
}

// ContainerName generates the container name for a service in a stack.
// Pattern: devstack_{stackName}_{serviceName}
func ContainerName(stackName, serviceName string) string {
	return fmt.Sprintf("devstack_%s_%s", stackName, serviceName)
}
