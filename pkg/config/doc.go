/*
Package config loads herdctl configuration files and expands them into the
desired service set.

A configuration file has a `herd:` section describing the managed services
and an `app:` section exposing the few application settings herdctl needs:

	herd:
	  instance_name: main
	  process_manager: systemd
	  app_root: /srv/app
	  bin_dir: /srv/app/venv/bin
	  web:
	    - bind: localhost:8080
	    - bind: localhost:8081
	  worker:
	    concurrency: 4
	  uploader:
	    enable: true
	    upload_dir: /srv/app/uploads
	  handlers:
	    job_handler:
	      processes: 3
	app:
	  external_url: https://app.example.org

The `web:` key accepts a single mapping or a list; the list form runs one
replica per entry, which is what enables zero-downtime rolling restarts.

ServiceDefinitions performs all desired-state validation up front so that
configuration errors surface before any process manager state is mutated.
*/
package config
