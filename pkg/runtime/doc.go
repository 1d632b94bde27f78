/*
Package runtime provides the container sandbox a container-process
application runs its command in. Runtime is the narrow interface
pkg/app depends on (pull, create, start, wait, stop, delete, inspect,
logs, IP lookup); ContainerdRuntime is the only production
implementation, talking to a containerd socket through the upstream
containerd client, cio, and OCI runtime-spec packages.

Filesystem-backed input/output data nodes are attached as bind mounts
via ContainerSpec.Binds; everything else reaches the sandbox as a
DataURL substituted into the command line by pkg/app before
CreateContainer is called, so this package never needs to know about
data nodes at all.

Container logs are captured by attaching the task's stdio to an
in-memory buffer at StartContainer time rather than polling containerd
for a log file, since the upstream client does not expose one for
NullIO-less tasks.
*/
package runtime
