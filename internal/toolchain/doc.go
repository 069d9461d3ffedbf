// Package toolchain installs pinned tool binaries into build environments.
//
// A toolchain is an ordered list of components, each naming a tool, the
// exact version it is pinned to, and how it gets installed. Install methods
// form a closed set: [DownloadExtract] fetches an archive and places one
// executable from it in the environment's install directory, and
// [PackageManagerInstall] runs a package manager inside the environment
// with an exact version constraint. The provisioner never branches on a
// component's name; each method knows how to install itself.
//
// Components are installed in declaration order, so a package manager can
// be provisioned by an earlier component and used by a later one. The first
// failure aborts provisioning and leaves the environment unusable.
//
// Example usage:
//
//	p := toolchain.New(toolchain.WithAttempts(3))
//	err := p.Provision(ctx, env, []toolchain.Component{
//	    {Name: "zig", Version: "0.13.0", Method: toolchain.DownloadExtract{
//	        URL: "https://ziglang.org/download/{version}/zig-linux-x86_64-{version}.tar.xz",
//	    }},
//	    {Name: "wasm-bindgen", Version: "0.2.100", Method: toolchain.PackageManagerInstall{
//	        Manager: "cargo", Package: "wasm-bindgen-cli",
//	    }},
//	})
//	if err != nil {
//	    return err
//	}
package toolchain
