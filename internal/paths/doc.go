// Provides platform-appropriate paths for pinbuild.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS and Windows, with "pinbuild" as the subdirectory under each base.
// Nothing stored below these paths survives a run except the configuration
// file; scratch environments are created and removed per run.
package paths
