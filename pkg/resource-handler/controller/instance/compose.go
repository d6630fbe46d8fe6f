package instance

import (
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
)

// Files written to the compose directory of a machine.
const (
	ComposeFileName = "docker-compose.yaml"
	// ComposeEnvName holds the variables substituted into the compose file.
	ComposeEnvName = ".env"
	// EnvFileName is the env_file passed to the container.
	EnvFileName = "pgenv"

	// dataMountPath is where the host data directory is mounted.
	dataMountPath = "/var/lib/postgresql/data"
)

type composeProject struct {
	Version  string                    `yaml:"version"`
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	ContainerName string   `yaml:"container_name"`
	Image         string   `yaml:"image"`
	Hostname      string   `yaml:"hostname"`
	NetworkMode   string   `yaml:"network_mode"`
	Restart       string   `yaml:"restart"`
	EnvFile       []string `yaml:"env_file"`
	Volumes       []string `yaml:"volumes"`
	Command       []string `yaml:"command"`
}

// ComposeFile renders the compose project of role. Image, host name and data
// directory are read from ComposeEnvName.
func ComposeFile(role pgv1alpha1.InstanceRole) ([]byte, error) {
	svc := role.ComposeService()
	project := composeProject{
		Version: "3",
		Services: map[string]composeService{
			svc: {
				ContainerName: svc,
				Image:         "${IMAGE}",
				Hostname:      "${HOSTNAME}",
				NetworkMode:   "host",
				Restart:       "always",
				EnvFile:       []string{EnvFileName},
				Volumes:       []string{"${PGDATA}:" + dataMountPath},
				Command:       []string{EntrypointArg},
			},
		},
	}
	out, err := yaml.Marshal(project)
	if err != nil {
		return nil, fmt.Errorf("failed to render compose file: %w", err)
	}
	return out, nil
}

// ComposeEnv renders the substitution variables of the compose file.
func ComposeEnv(image, host, pgdata string) []byte {
	return EnvFile([]Variable{
		{Name: "IMAGE", Value: image},
		{Name: "HOSTNAME", Value: host},
		{Name: "PGDATA", Value: pgdata},
	})
}

// composeCommand runs docker-compose with args in the compose directory of
// role.
func composeCommand(layout connection.MachineLayout, role pgv1alpha1.InstanceRole, args string) string {
	return "cd " + layout.ComposeDir(role) + "; docker-compose " + args
}

// writeCompose uploads the three compose files of an instance.
func writeCompose(m *connection.MachineTarget, layout connection.MachineLayout, image string, env []Variable) error {
	role := m.Role()
	project, err := ComposeFile(role)
	if err != nil {
		return err
	}
	dir := layout.ComposeDir(role)
	files := []struct {
		name string
		data []byte
	}{
		{ComposeFileName, project},
		{ComposeEnvName, ComposeEnv(image, m.Host(), layout.PGData(role))},
		{EnvFileName, EnvFile(env)},
	}
	for _, f := range files {
		if err := m.Files().Put(path.Join(dir, f.name), f.data); err != nil {
			return fmt.Errorf("failed to put %s on %s: %w", f.name, m.Host(), err)
		}
	}
	return nil
}
