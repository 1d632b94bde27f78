package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstitutePlaceholdersIndexedAndNamed(t *testing.T) {
	inputs := []boundPath{{uid: "in1", path: "/sandbox/in/in1"}, {uid: "in2", path: "/sandbox/in/in2"}}
	outputs := []boundPath{{uid: "out1", path: "/sandbox/out/out1"}}

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{"indexed input", "%i0", "/sandbox/in/in1"},
		{"second indexed input", "%i1", "/sandbox/in/in2"},
		{"named input", "%i[in2]", "/sandbox/in/in2"},
		{"indexed output", "%o0", "/sandbox/out/out1"},
		{"named output", "%o[out1]", "/sandbox/out/out1"},
		{"embedded in larger arg", "--in=%i0", "--in=/sandbox/in/in1"},
		{"no placeholder", "--verbose", "--verbose"},
		{"literal percent with no match", "100%done", "100%done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := substitutePlaceholders([]string{tt.arg}, inputs, outputs, nil, nil, nil)
			require.NoError(t, err)
			require.Equal(t, []string{tt.want}, got)
		})
	}
}

func TestSubstitutePlaceholdersDataURLs(t *testing.T) {
	inputURLs := []urlBacked{{uid: "in1", url: "memory://host/in1"}}
	outputURLs := []urlBacked{{uid: "out1", url: "file://host/out1"}}

	got, err := substitutePlaceholders([]string{"%iDataURL0", "%oDataURL[out1]"}, nil, nil, inputURLs, outputURLs, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"memory://host/in1", "file://host/out1"}, got)
}

func TestSubstitutePlaceholdersContainerIP(t *testing.T) {
	ips := map[string]string{"producer-oid": "10.0.0.9"}

	got, err := substitutePlaceholders([]string{"--peer=%containerIp[producer-oid]%"}, nil, nil, nil, nil, ips)
	require.NoError(t, err)
	require.Equal(t, []string{"--peer=10.0.0.9"}, got)
}

func TestSubstitutePlaceholdersUnresolvedContainerIPFails(t *testing.T) {
	_, err := substitutePlaceholders([]string{"%containerIp[unknown]%"}, nil, nil, nil, nil, map[string]string{})
	require.Error(t, err)
}

func TestSubstitutePlaceholdersOutOfRangeIndexFails(t *testing.T) {
	inputs := []boundPath{{uid: "in1", path: "/sandbox/in/in1"}}
	_, err := substitutePlaceholders([]string{"%i5"}, inputs, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSubstitutePlaceholdersUnknownUIDFails(t *testing.T) {
	inputs := []boundPath{{uid: "in1", path: "/sandbox/in/in1"}}
	_, err := substitutePlaceholders([]string{"%i[ghost]"}, inputs, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'plain'`, shellQuote("plain"))
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestBuildSandboxCommandWithoutUserSwitch(t *testing.T) {
	cmd := buildSandboxCommand("", false, 1000, nil, []string{"echo", "hi"})
	require.Equal(t, []string{"/bin/sh", "-c", "'echo' 'hi'"}, cmd)
}

func TestBuildSandboxCommandSwitchesUser(t *testing.T) {
	cmd := buildSandboxCommand("worker", true, 1000, []string{"/sandbox/out"}, []string{"echo", "hi"})
	require.Equal(t, "/bin/sh", cmd[0])
	require.Equal(t, "-c", cmd[1])
	require.Contains(t, cmd[2], "useradd -u 1000 -M worker")
	require.Contains(t, cmd[2], "chown -R worker '/sandbox/out'")
	require.Contains(t, cmd[2], "exec su -l worker -c "+shellQuote("'echo' 'hi'"))
}
