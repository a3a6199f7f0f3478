/*
Package backend defines the adapter contract between the reconciliation core
and a concrete process manager, plus the shared plumbing (command runner,
log tailer) both implementations use.

Two backends exist: systemd (unit files plus systemctl) and supervisor
(program files plus supervisorctl). The core never imports either directly;
it acts only through the Adapter interface, and the active backend is
selected at startup from the configuration's process_manager setting.

Units owned by herdctl carry the "herd-" name prefix. Anything without the
prefix is invisible to ListInstalled and untouchable by Remove, which keeps
reconciliation from ever interfering with units that belong to someone
else.
*/
package backend
