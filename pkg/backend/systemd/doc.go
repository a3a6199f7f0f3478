// Package systemd implements the process manager adapter on top of systemd
// unit files, systemctl and journalctl. Replicated services install as
// name@index units so a bare group name can fan out to every replica.
package systemd
