// Package supervisor implements the process manager adapter on top of
// supervisord include files and supervisorctl. Each instance gets its own
// program file; supervisorctl update is the single commit point that starts,
// stops and restarts programs to match the files on disk.
package supervisor
