// Package recipe loads and validates pipeline definitions.
//
// A pipeline definition is a YAML document naming the base image, the
// pinned toolchain, the configuration variables that steer the build, the
// ordered build steps, and the output directory to export. All version
// pins live in the toolchain section; URLs refer to them through the
// "{version}" placeholder so each version is written exactly once.
//
//	name: web-app
//	image: docker.io/library/debian:12.5
//	toolchain:
//	  - name: compiler
//	    version: 1.2.3
//	    download:
//	      url: https://example.com/compiler-{version}.tar.gz
//	  - name: codegen-cli
//	    version: 0.2.100
//	    package: {manager: cargo, package: codegen-cli}
//	configure:
//	  workdir: /src
//	  feature: {var: APP_FEATURES, value: featureX}
//	  provenance: {var: APP_DEPS, value: local}
//	steps:
//	  - run: compiler build --features $APP_FEATURES
//	  - command: codegen-cli
//	    args: [--out, dist]
//	artifact:
//	  path: dist
//
// Step "run" strings are split into words like a shell would, but only the
// declared configuration variables are visible to $VAR references. Nothing
// is read from the invoking process's environment.
package recipe
